package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestClient(t *testing.T) {
	m := Client{ID: "c1", Provisioned: true}
	assert.Equal(t, "c1", m.ID)
	assert.True(t, m.Provisioned)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
