package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Helpers(t *testing.T) {
	cause := errors.New("boom")

	storage := NewStorageError("record occurrence", "n1", cause)
	wrapped := fmt.Errorf("cycle: %w", storage)

	assert.True(t, IsStorageUnavailable(wrapped))
	assert.False(t, IsDirectoryUnavailable(wrapped))
	assert.False(t, IsTaskCreateFailed(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "STORAGE_UNAVAILABLE: record occurrence (notification=n1): boom", storage.Error())

	task := NewTaskCreateError("n1", "u1", cause)
	assert.True(t, IsTaskCreateFailed(task))
	assert.Equal(t, "TASK_CREATE_FAILED: create task (notification=n1, user=u1): boom", task.Error())

	dir := NewDirectoryError("n1", cause)
	assert.True(t, IsDirectoryUnavailable(dir))

	assert.False(t, IsStorageUnavailable(cause))
	assert.False(t, IsStorageUnavailable(nil))
}

func TestRuntimeError_NoNotification(t *testing.T) {
	err := NewStorageError("find recurring candidates", "", errors.New("locked"))
	assert.Equal(t, "STORAGE_UNAVAILABLE: find recurring candidates: locked", err.Error())
}
