package pointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointers(t *testing.T) {
	assert.Equal(t, 5, *To(5))
	assert.Equal(t, 0, Safe[int](nil))
	assert.Equal(t, "x", Safe(String("x")))
	assert.Equal(t, 7, Or(nil, 7))
	assert.Equal(t, 3, Or(Int(3), 7))
	assert.Equal(t, "", SafeString(nil))

	v := 1
	assert.False(t, Assign(&v, nil))
	assert.Equal(t, 1, v)
	assert.True(t, Assign(&v, Int(2)))
	assert.Equal(t, 2, v)
}
