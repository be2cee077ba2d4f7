package service

import (
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

func authorizeAdmin(actor models.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
}

// authorizeStudent allows a student acting on their own records, or an admin.
func authorizeStudent(actor models.Actor, studentID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.RoleStudent && actor.ID != "" && actor.ID == studentID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "students may only act on their own enrollments")
}

// authorizeFaculty allows the faculty member themselves, or an admin.
func authorizeFaculty(actor models.Actor, facultyID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.RoleFaculty && actor.ID != "" && actor.ID == facultyID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "faculty may only act on sections they teach")
}

// authorizeReader allows an admin, or the caller whose own records are named by id.
func authorizeReader(actor models.Actor, id string) error {
	if actor.IsAdmin() || (actor.ID != "" && actor.ID == id) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "records belong to another user")
}
