package models

// DegreeType distinguishes undergraduate and postgraduate programmes.
type DegreeType string

const (
	DegreeTypeUG DegreeType = "UG"
	DegreeTypePG DegreeType = "PG"
)

// Valid reports whether the degree type is known.
func (t DegreeType) Valid() bool {
	return t == DegreeTypeUG || t == DegreeTypePG
}

// Degree is an academic programme owning an ordered list of courses.
type Degree struct {
	ID   string     `db:"id" json:"id" yaml:"id"`
	Name string     `db:"name" json:"name" yaml:"name"`
	Type DegreeType `db:"type" json:"type" yaml:"type"`
}

// DefaultMaxEnroll is the per-section capacity used when the catalog omits one.
const DefaultMaxEnroll = 30

// Course is a catalog entry taught in a given semester of a degree.
type Course struct {
	ID         string `db:"id" json:"id" yaml:"id"`
	Name       string `db:"name" json:"name" yaml:"name"`
	DegreeID   string `db:"degree_id" json:"degree_id" yaml:"degree_id"`
	Year       int    `db:"year" json:"year" yaml:"year"`
	Semester   int    `db:"semester" json:"semester" yaml:"semester"`
	Credits    int    `db:"credits" json:"credits" yaml:"credits"`
	MaxEnroll  int    `db:"max_enroll" json:"max_enroll" yaml:"max_enroll"`
	Department string `db:"department" json:"department,omitempty" yaml:"department"`
}

// Faculty is a teaching staff member who may be allocated to courses.
type Faculty struct {
	ID          string `db:"id" json:"id" yaml:"id"`
	Name        string `db:"name" json:"name" yaml:"name"`
	Department  string `db:"department" json:"department" yaml:"department"`
	Designation string `db:"designation" json:"designation,omitempty" yaml:"designation"`
}

// CourseLimits holds the admin-mutable numbers of a course.
type CourseLimits struct {
	Credits   int `json:"credits" validate:"required,min=1"`
	MaxEnroll int `json:"max_enroll" validate:"min=0"`
}
