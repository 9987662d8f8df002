package service

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
)

func TestParseInteger(t *testing.T) {
	cases := map[string]struct {
		want int
		ok   bool
	}{
		"2020":   {2020, true},
		"2020.0": {2020, true},
		"-5":     {-5, true},
		"2020.5": {0, false},
		"abc":    {0, false},
		"1e99":   {0, false},
		"NaN":    {0, false},
	}
	for raw, tc := range cases {
		got, ok := parseInteger(raw)
		assert.Equal(t, tc.ok, ok, raw)
		assert.Equal(t, tc.want, got, raw)
	}
}

func TestParseDecimal(t *testing.T) {
	got, ok := parseDecimal("8,5")
	assert.True(t, ok)
	assert.Equal(t, 8.5, got)

	got, ok = parseDecimal("9.75")
	assert.True(t, ok)
	assert.Equal(t, 9.75, got)

	_, ok = parseDecimal("1,000.5")
	assert.False(t, ok)
	_, ok = parseDecimal("Inf")
	assert.False(t, ok)
}

func TestResolveStatus(t *testing.T) {
	assert.Equal(t, models.StudentStatusActive, resolveStatus(" ACTIVO "))
	assert.Equal(t, models.StudentStatusGraduated, resolveStatus("graduado"))
	assert.Equal(t, models.StudentStatusGraduated, resolveStatus("Graduated"))
	assert.Equal(t, models.StudentStatus("egresado"), resolveStatus("egresado"))
}

func TestStudentRulesRegisterYearRule(t *testing.T) {
	rules := newStudentRules(validator.New(), fixedNow)

	assert.Error(t, rules.registerYearRule(""))

	year := 2025
	messages := rules.check(CreateStudentRequest{Name: "Ana", StartYear: &year, NUE: "N1", Status: models.StudentStatusActive}, nil)
	require.Len(t, messages, 1)
	assert.Equal(t, "startYear must not be greater than 2024", messages[0])
}

func TestStudentRulesNormalizeMapsStatusTokens(t *testing.T) {
	rules := newStudentRules(nil, fixedNow)

	req := rules.normalize(CreateStudentRequest{Status: " Graduado "})
	assert.Equal(t, models.StudentStatusGraduated, req.Status)

	req = rules.normalize(CreateStudentRequest{Status: "activo", GraduationAverage: floatPtr(5)})
	assert.Equal(t, models.StudentStatusActive, req.Status)
	assert.Nil(t, req.GraduationAverage)
}
