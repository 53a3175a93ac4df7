package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/policy"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest 校验请求参数,失败时返回 VALIDATION_ERROR
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &approval.Error{Code: approval.CodeValidation, Message: "invalid request", Err: err}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return &approval.Error{Code: approval.CodeValidation, Message: strings.Join(msgs, "; "), Err: err}
}

// requireActor 操作人必须由网关提供
func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return &approval.Error{Code: approval.CodeValidation, Message: "actor identity is required"}
	}
	return nil
}

// requireAdmin 操作人必须是工作区管理员
func requireAdmin(ctx context.Context, resolver *policy.Resolver, actorID, workspaceID string) error {
	ok, err := resolver.IsWorkspaceAdmin(ctx, actorID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to check workspace admin: %w", err)
	}
	if !ok {
		return &approval.Error{Code: approval.CodeNotEligible, Message: fmt.Sprintf("user %s is not an administrator of workspace %s", actorID, workspaceID)}
	}
	return nil
}
