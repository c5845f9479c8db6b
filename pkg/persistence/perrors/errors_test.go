package perrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oapcore/persistence/pkg/persistence/perrors"
)

func TestBuildError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("bad column")
	err := perrors.NewBuildError("w1", "*fakeItem", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "w1")
	assert.Contains(t, err.Error(), "bad column")
}

func TestFlushError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := perrors.NewFlushError("w1", cause)

	assert.ErrorIs(t, err, cause)
}

func TestWorkerError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("context canceled")
	err := perrors.NewWorkerError("w1", cause)

	assert.ErrorIs(t, err, cause)
}
