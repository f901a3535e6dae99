package tutorial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAnimator struct {
	started []string
}

func (r *recordingAnimator) Start(page Page) {
	r.started = append(r.started, page.Animation)
}

func TestPages_AreFixed(t *testing.T) {
	assert.Equal(t, 3, Count())

	want := []struct{ title, anim string }{
		{"Complete Simple Tasks", "tutorial1"},
		{"Invite Your Friends", "tutorial2"},
		{"Withdraw Your Earnings", "tutorial3"},
	}
	for i, w := range want {
		p, err := PageAt(i)
		require.NoError(t, err)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, w.title, p.Title)
		assert.Equal(t, w.anim, p.Animation)
		assert.NotEmpty(t, p.Description)
	}

	_, err := PageAt(3)
	assert.Error(t, err)
	_, err = PageAt(-1)
	assert.Error(t, err)
}

func TestPages_ReturnsCopy(t *testing.T) {
	ps := Pages()
	ps[0].Title = "changed"
	p, _ := PageAt(0)
	assert.Equal(t, "Complete Simple Tasks", p.Title)
}

func TestPager_StartsAnimationOncePerVisibility(t *testing.T) {
	anim := &recordingAnimator{}
	p := NewPager(anim)
	assert.Equal(t, -1, p.Current())

	assert.True(t, p.Show(0))
	p.Layout()
	p.Layout()
	assert.False(t, p.Show(0))
	assert.Equal(t, 2, p.Layouts())
	assert.Equal(t, []string{"tutorial1"}, anim.started)

	assert.True(t, p.Next())
	assert.True(t, p.Next())
	assert.False(t, p.Next())
	assert.Equal(t, 2, p.Current())

	assert.True(t, p.Prev())
	assert.Equal(t, []string{"tutorial1", "tutorial2", "tutorial3", "tutorial2"}, anim.started)
}

func TestPager_IgnoresOutOfRange(t *testing.T) {
	anim := &recordingAnimator{}
	p := NewPager(anim)

	assert.False(t, p.Show(3))
	assert.False(t, p.Show(-1))
	assert.False(t, p.Prev())
	assert.Empty(t, anim.started)
	assert.Equal(t, -1, p.Current())
}
