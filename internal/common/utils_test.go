package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 5.0, Round(18.0*1000/3600, 2))
	assert.Equal(t, 28.7, Round(28.7041, 2))
	assert.Equal(t, 77.1, Round(77.1025, 2))
	assert.Equal(t, -12.35, Round(-12.345678, 2))
	assert.Equal(t, 3.0, Round(2.5, 0))
}
