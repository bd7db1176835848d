package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashString(""))
	assert.Equal(t, HashString("abc"), Hash([]byte("abc")))
}

func TestHashFields(t *testing.T) {
	assert.Equal(t, HashFields("a", "b"), HashFields("a", "b"))
	assert.NotEqual(t, HashFields("a", "b"), HashFields("b", "a"))
	assert.NotEqual(t, HashFields("ab", "c"), HashFields("a", "bc"))
}

func TestShortHash(t *testing.T) {
	full := HashString("x")
	assert.Len(t, ShortHash(full), 16)
	assert.Equal(t, full[:16], ShortHash(full))
	assert.Equal(t, "abc", ShortHash("abc"))
}
