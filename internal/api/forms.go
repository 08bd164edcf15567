// movie-ranking/internal/api/forms.go
package api

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"movie-ranking/internal/domain"

	"github.com/go-playground/validator/v10"
)

// FieldErrors - сообщения об ошибках по имени поля формы.
type FieldErrors map[string]string

// FormResult - результат проверки формы: либо Value, либо непустой Errors.
type FormResult[T any] struct {
	Value  T
	Errors FieldErrors
}

func (r FormResult[T]) OK() bool {
	return len(r.Errors) == 0
}

// RatingUpdate - проверенные данные формы оценки.
type RatingUpdate struct {
	Rating float64
	Review string
}

var fieldMessages = map[string]map[string]string{
	"rating": {
		"required": "Please provide Rating",
		"gte":      "Rating can only be from 1 to 10",
		"lte":      "Rating can only be from 1 to 10",
	},
	"review": {
		"required": "Please provide Review",
		"max":      "Review can be at most 250 characters",
	},
	"title": {
		"required": "Enter movie title to search for it",
	},
}

func messageFor(field, tag string) string {
	if msg, ok := fieldMessages[field][tag]; ok {
		return msg
	}
	return "Invalid value"
}

// collectErrors переводит ошибки validator в FieldErrors, не затирая уже найденные.
func collectErrors(err error, errs FieldErrors) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	for _, fe := range ves {
		field := strings.ToLower(fe.Field())
		if _, exists := errs[field]; exists {
			continue
		}
		errs[field] = messageFor(field, fe.Tag())
	}
	return nil
}

// ValidateRatingForm проверяет rating (число 1..10) и review (непустой, до 250 символов).
func ValidateRatingForm(ctx context.Context, v *validator.Validate, values url.Values) (FormResult[RatingUpdate], error) {
	errs := FieldErrors{}
	req := domain.RateMovieRequest{Review: strings.TrimSpace(values.Get("review"))}

	if raw := strings.TrimSpace(values.Get("rating")); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs["rating"] = "Rating must be a number"
		} else {
			req.Rating = &rating
		}
	}

	if err := v.StructCtx(ctx, req); err != nil {
		if err := collectErrors(err, errs); err != nil {
			return FormResult[RatingUpdate]{}, err
		}
	}
	if len(errs) > 0 {
		return FormResult[RatingUpdate]{Errors: errs}, nil
	}
	return FormResult[RatingUpdate]{Value: RatingUpdate{Rating: *req.Rating, Review: req.Review}}, nil
}

// ValidateSearchForm проверяет, что название для поиска задано.
func ValidateSearchForm(ctx context.Context, v *validator.Validate, values url.Values) (FormResult[string], error) {
	errs := FieldErrors{}
	req := domain.FindMovieRequest{Title: strings.TrimSpace(values.Get("title"))}

	if err := v.StructCtx(ctx, req); err != nil {
		if err := collectErrors(err, errs); err != nil {
			return FormResult[string]{}, err
		}
		return FormResult[string]{Errors: errs}, nil
	}
	return FormResult[string]{Value: req.Title}, nil
}
