package controller

import (
	"context"
	"errors"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

// ErrorKind — короткое имя вида ошибки для логов и метрик.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repo.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, repo.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.Is(err, repo.ErrCorruptRecord):
		return "corrupt_record"
	case errors.Is(err, ipam.ErrAddressSpaceExhausted):
		return "address_space_exhausted"
	case errors.Is(err, wireguard.ErrExternalTool):
		return "external_tool_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// Retryable — сбой внешнего инструмента можно повторить; остальное окончательно.
func Retryable(err error) bool {
	return errors.Is(err, wireguard.ErrExternalTool)
}
