package domain

import "errors"

var (
	ErrValidation    = errors.New("invalid poll")
	ErrPollNotFound  = errors.New("poll not found")
	ErrInvalidOption = errors.New("option not offered by poll")
)

var ErrPollFull = errors.New("poll has reached its subscriber limit")
