package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "course-registration:catalog:course:CS301", Key("catalog", "course", "CS301"))
	assert.Equal(t, "course-registration:catalog:*", Key("catalog", "*"))
}
