package service

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/odnarb/bigfoot-map/internal/dal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json names in field errors
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// SubmissionInput is the body of a new report submission.
type SubmissionInput struct {
	Title             string              `json:"title" validate:"max=200"`
	Summary           string              `json:"summary" validate:"max=10000"`
	ISODate           string              `json:"isoDate"`
	Scope             string              `json:"scope" validate:"omitempty,oneof=private team global"`
	TeamID            string              `json:"teamId" validate:"max=128"`
	SharedWithTeamIDs []string            `json:"sharedWithTeamIds" validate:"omitempty,dive,required,max=128"`
	SourceURL         string              `json:"sourceUrl" validate:"omitempty,url"`
	Position          *SubmissionPosition `json:"position"`
	CountryCode       string              `json:"countryCode" validate:"omitempty,len=2,alpha"`
	StateCode         string              `json:"stateCode" validate:"max=8"`
	StateName         string              `json:"stateName" validate:"max=128"`
	CountyName        string              `json:"countyName" validate:"max=128"`
	SightingClass     string              `json:"sightingClass" validate:"max=64"`
}

// SubmissionPosition is a submitted map pin. Both coordinates are required
// once a position is given.
type SubmissionPosition struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (p *SubmissionPosition) toPosition() *dal.Position {
	if p == nil || p.Lat == nil || p.Lng == nil {
		return nil
	}
	return &dal.Position{Lat: *p.Lat, Lng: *p.Lng}
}

// TriagePatch lists the triage fields a reviewer may set. Nil fields are
// left unchanged.
type TriagePatch struct {
	Status       *string `json:"status" validate:"omitempty,oneof=needs-info new in-review queued vetted"`
	Tier         *string `json:"tier" validate:"omitempty,max=64"`
	FollowedUpBy *string `json:"followedUpBy" validate:"omitempty,max=128"`
}

// validateStruct returns field -> failed tag, or nil when v is valid.
func validateStruct(v any) map[string]string {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"": err.Error()}
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[strings.TrimPrefix(fe.Namespace(), rootNamespace(fe))] = fe.Tag()
	}
	return fields
}

// rootNamespace is the leading "TypeName." of a field error namespace.
func rootNamespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i+1]
	}
	return ""
}
