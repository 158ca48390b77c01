package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type panicky struct{}

func (panicky) ResponseToken() string { panic("widget not rendered") }
func (panicky) Reset()                { panic("widget not rendered") }

func TestHelpersToleratesMissingWidget(t *testing.T) {
	assert.Equal(t, "", Token(nil))
	assert.False(t, Reset(nil))
}

func TestHelpersRecoverFromBrokenWidget(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, "", Token(panicky{}))
		assert.False(t, Reset(panicky{}))
	})
}

func TestStaticIsSingleUse(t *testing.T) {
	w := NewStatic("abc")
	assert.Equal(t, "abc", Token(w))

	assert.True(t, Reset(w))
	assert.Equal(t, "", Token(w))
	assert.Equal(t, 1, w.Resets())

	w.Set("def")
	assert.Equal(t, "def", Token(w))
}
