package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Execute validates msg and runs cmd with it. Invalid messages never reach
// the command.
func Execute[T any](ctx context.Context, cmd command.Commander[T], msg T) error {
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return cmd.Execute(ctx, msg)
}

// ExecuteWithResult runs cmd and returns the value it stored in the result
// collector, if any.
func ExecuteWithResult[T any, R any](ctx context.Context, cmd command.Commander[T], msg T) (R, bool, error) {
	var zero R
	collector := command.NewResult[R]()
	if err := Execute(command.ContextWithResult(ctx, collector), cmd, msg); err != nil {
		return zero, false, err
	}
	value, ok := collector.Load()
	return value, ok, nil
}

// Query validates msg and runs qry with it.
func Query[T any, R any](ctx context.Context, qry command.Querier[T, R], msg T) (R, error) {
	var zero R
	if qry == nil {
		return zero, fmt.Errorf("gocommand: query is required")
	}
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	return qry.Query(ctx, msg)
}
