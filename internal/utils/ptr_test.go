package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	n := Ptr(1024)
	assert.Equal(t, 1024, *n)

	temp := Ptr(float32(0.2))
	assert.Equal(t, float32(0.2), *temp)

	// Each call copies its argument; pointers never alias.
	a, b := Ptr("x"), Ptr("x")
	assert.NotSame(t, a, b)
	assert.Equal(t, *a, *b)
}
