package ledger

import (
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeNotFound = "not_found"

var ErrAssetNotFound = goerrors.New("asset not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrSumUpNotFound = goerrors.New("sum up not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)
