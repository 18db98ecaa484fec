package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(0.0, Clamp(-5.0, 0, 600))
	assert.Equal(600.0, Clamp(601.0, 0, 600))
	assert.Equal(42.5, Clamp(42.5, 0, 600))
	assert.Equal(3, Clamp(3, 3, 3))
}
