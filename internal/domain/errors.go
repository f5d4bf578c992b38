package domain

import "errors"

var (
	ErrInvalidURL     = errors.New("invalid feed url")
	ErrSourceInactive = errors.New("source is not active")
	ErrItemNotFound   = errors.New("item not found")
	ErrMissingGUID    = errors.New("item has neither link nor guid")
	ErrRunInProgress  = errors.New("collection run already in progress")
	ErrUnknownField   = errors.New("field is not queryable")
)
