package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaults(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.Equal(t, info, Get())
}

func TestFillKeepsStampedCommit(t *testing.T) {
	assert.Equal(t, "abc1234", fill(Info{Commit: "abc1234"}).Commit)
	assert.Equal(t, "local", fill(Info{}).Commit)
}
