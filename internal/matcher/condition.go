// Package matcher evaluates playlet conditions and file filters. Everything
// here is pure and safe for concurrent use.
package matcher

import (
	"regexp"
	"strconv"
	"strings"

	"magnet-playlets/internal/domain"
)

const bytesPerMB = 1024 * 1024

// Matches reports whether the torrent satisfies the playlet's conditions.
// A nil totalBytes or fileCount means the value is not known yet; conditions
// on that field then hold vacuously.
func Matches(p *domain.Playlet, torrentName string, totalBytes *int64, fileCount *int) bool {
	if len(p.Conditions) == 0 {
		return true
	}

	anyOf := p.ConditionLogic == domain.LogicOr
	for _, c := range p.Conditions {
		ok := evaluate(c, torrentName, totalBytes, fileCount)
		if c.Negate {
			ok = !ok
		}
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	return !anyOf
}

func evaluate(c domain.Condition, name string, totalBytes *int64, fileCount *int) bool {
	switch c.Field {
	case domain.FieldName:
		return matchName(c.Operator, name, c.Value)
	case domain.FieldTotalSize:
		if totalBytes == nil {
			return true
		}
		return matchNumber(c, float64(*totalBytes)/bytesPerMB)
	case domain.FieldFileCount:
		if fileCount == nil {
			return true
		}
		return matchNumber(c, float64(*fileCount))
	default:
		return false
	}
}

func matchName(op domain.ConditionOperator, name, value string) bool {
	if op == domain.OpRegex {
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	}

	name = strings.ToLower(name)
	value = strings.ToLower(value)
	switch op {
	case domain.OpContains:
		return strings.Contains(name, value)
	case domain.OpNotContains:
		return !strings.Contains(name, value)
	case domain.OpStartsWith:
		return strings.HasPrefix(name, value)
	case domain.OpEndsWith:
		return strings.HasSuffix(name, value)
	case domain.OpEquals:
		return name == value
	default:
		return false
	}
}

func matchNumber(c domain.Condition, actual float64) bool {
	lo, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return false
	}
	switch c.Operator {
	case domain.OpGreaterThan:
		return actual > lo
	case domain.OpLessThan:
		return actual < lo
	case domain.OpBetween:
		hi, err := strconv.ParseFloat(strings.TrimSpace(c.Value2), 64)
		if err != nil {
			return false
		}
		return actual >= lo && actual <= hi
	default:
		return false
	}
}

// ValidOperator reports whether op can be used with field.
func ValidOperator(field domain.ConditionField, op domain.ConditionOperator) bool {
	switch field {
	case domain.FieldName:
		switch op {
		case domain.OpContains, domain.OpNotContains, domain.OpStartsWith,
			domain.OpEndsWith, domain.OpEquals, domain.OpRegex:
			return true
		}
	case domain.FieldTotalSize, domain.FieldFileCount:
		switch op {
		case domain.OpGreaterThan, domain.OpLessThan, domain.OpBetween:
			return true
		}
	}
	return false
}
