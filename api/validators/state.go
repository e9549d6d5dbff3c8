package validators

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// ParseTruthy converts a shop state sent as a JSON bool, number or one of
// true/false/1/0/yes/no/on/off (any case) into a bool.
func ParseTruthy(raw json.RawMessage, field string) (bool, error) {
	invalid := pkgerrors.New(pkgerrors.CodeValidation, "invalid boolean").
		WithDetails(map[string]string{field: "must be one of true, false, 1, 0, yes, no, on, off"})

	var value any
	if len(raw) == 0 || json.Unmarshal(raw, &value) != nil {
		return false, invalid
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on", "y", "t":
			return true, nil
		case "false", "0", "no", "off", "n", "f":
			return false, nil
		}
	}
	return false, invalid
}

// DecodeItems decodes an `items` field that legacy clients send as a JSON
// string holding an array and newer clients send as the array itself.
func DecodeItems(raw json.RawMessage, dest any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return pkgerrors.New(pkgerrors.CodeValidation, "items required").
			WithDetails(map[string]string{"items": "is required"})
	}
	payload := []byte(trimmed)
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return itemsFormatError(err)
		}
		payload = []byte(inner)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return itemsFormatError(err)
	}
	return nil
}

func itemsFormatError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid items").
		WithDetails(map[string]string{"items": "must be a JSON array"})
}

// DecodeIDList reads an `items` id list sent either as a comma separated
// string ("1,2") or as a JSON array ([1,2] or ["1","2"]) and returns it in
// the comma separated form the services parse.
func DecodeIDList(raw json.RawMessage) (string, error) {
	missing := pkgerrors.New(pkgerrors.CodeValidation, "items required").
		WithDetails(map[string]string{"items": "is required"})
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", missing
	}

	var list string
	if strings.HasPrefix(trimmed, "[") {
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
			return "", idListFormatError(err)
		}
		ids := make([]string, 0, len(elems))
		for _, elem := range elems {
			var text string
			if json.Unmarshal(elem, &text) != nil {
				text = string(elem)
			}
			ids = append(ids, strings.TrimSpace(text))
		}
		list = strings.Join(ids, ",")
	} else if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		return "", idListFormatError(err)
	}
	if strings.Trim(list, ", ") == "" {
		return "", missing
	}
	return list, nil
}

func idListFormatError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid items").
		WithDetails(map[string]string{"items": "must be a comma separated string or an array of ids"})
}
