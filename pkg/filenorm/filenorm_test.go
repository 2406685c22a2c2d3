package filenorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_PathTraversal(t *testing.T) {
	got, ok := Normalize("../evil.jpg")
	assert.True(t, ok)
	assert.Equal(t, "..evil.jpg", got)
	assert.NotContains(t, got, "/")
}

func TestNormalize_NUL(t *testing.T) {
	got, ok := Normalize("foo\x00bar.jpg")
	assert.True(t, ok)
	assert.Equal(t, "foobar.jpg", got)
}

func TestNormalize_TrailingDotsAndSpaces(t *testing.T) {
	got, ok := Normalize("name .  ")
	assert.True(t, ok)
	assert.Equal(t, "name", got)
}

func TestNormalize_Backslash(t *testing.T) {
	got, ok := Normalize(`sub\dir\file.jpg`)
	assert.True(t, ok)
	assert.Equal(t, "subdirfile.jpg", got)
}

func TestNormalize_EmptyAfterStrip(t *testing.T) {
	_, ok := Normalize("...   ")
	assert.False(t, ok)
}

func TestNormalize_OrdinaryName(t *testing.T) {
	got, ok := Normalize("IMG_1234.JPG")
	assert.True(t, ok)
	assert.Equal(t, "IMG_1234.JPG", got)
}

func TestNormalize_NFDtoNFC(t *testing.T) {
	// "é" as NFD: e + combining acute accent (U+0065 U+0301).
	nfd := "café.jpg"
	got, ok := Normalize(nfd)
	assert.True(t, ok)
	assert.Equal(t, "café.jpg", got)
	assert.Len(t, []rune(got), len([]rune("café.jpg")))
}
