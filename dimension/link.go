package dimension

import "github.com/WingsOS/android-packages-modules-StatsD/field"

// FieldLink pairs one field on the metric's "what" atom with the
// corresponding field on a condition or state atom (a single entry of
// Metric2Condition.metricFields/conditionFields or
// Metric2State.metricFields/stateFields in the original).
type FieldLink struct {
	What  field.Path
	Other field.Path
}

// ConditionLink resolves a metric's "what" fields to a condition's
// dimension fields (Metric2Condition).
type ConditionLink struct {
	ConditionID int64
	Fields      []FieldLink
}

// StateLink resolves a metric's "what" fields to a state atom's primary-key
// fields (Metric2State).
type StateLink struct {
	StateAtomID int32
	Fields      []FieldLink
}

// DimensionForCondition builds the condition dimension key implied by a
// what-key using the link's field correspondence (getDimensionForCondition).
func DimensionForCondition(what Key, link ConditionLink) Key {
	var out Key
	for _, fl := range link.Fields {
		for _, v := range what.Values {
			if v.Path.Equal(fl.What) {
				mapped := v
				mapped.Path = fl.Other
				out.Values = append(out.Values, mapped)
				break
			}
		}
	}
	return out
}

// DimensionForState builds the state atom's primary-key dimension implied
// by a what-key using the link's field correspondence
// (getDimensionForState).
func DimensionForState(what Key, link StateLink) Key {
	var out Key
	for _, fl := range link.Fields {
		for _, v := range what.Values {
			if v.Path.Equal(fl.What) {
				mapped := v
				mapped.Path = fl.Other
				out.Values = append(out.Values, mapped)
				break
			}
		}
	}
	return out
}

// LinkedStateValues reports whether primaryKey's values are a subset of
// whatKey's values connected via a Metric2State link for stateAtomID
// (containsLinkedStateValues).
func LinkedStateValues(whatKey, primaryKey Key, links []StateLink, stateAtomID int32) bool {
	for _, link := range links {
		if link.StateAtomID != stateAtomID {
			continue
		}
		derived := DimensionForState(whatKey, link)
		if derived.Contains(primaryKey) {
			return true
		}
	}
	return false
}

// Linked reports whether a Metric2State link exists connecting stateField
// and metricField for the given state atom id (linked).
func Linked(links []StateLink, stateAtomID int32, stateField, metricField field.Path) bool {
	for _, link := range links {
		if link.StateAtomID != stateAtomID {
			continue
		}
		for _, fl := range link.Fields {
			if fl.What.Equal(metricField) && fl.Other.Equal(stateField) {
				return true
			}
		}
	}
	return false
}
