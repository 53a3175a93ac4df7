package approval_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/approval-chain/internal/approval"
	"github.com/stretchr/testify/assert"
)

// TestError_Is 测试按错误码匹配哨兵错误
func TestError_Is(t *testing.T) {
	err := &approval.Error{Code: approval.CodeAlreadyDecided, Message: "record r-1 already approved"}
	wrapped := fmt.Errorf("decide: %w", err)

	assert.True(t, errors.Is(wrapped, approval.ErrAlreadyDecided))
	assert.False(t, errors.Is(wrapped, approval.ErrNotEligible))
	assert.Equal(t, approval.CodeAlreadyDecided, approval.CodeOf(wrapped))
	assert.Equal(t, approval.Code(""), approval.CodeOf(errors.New("plain")))
}
