package directory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aanand-mishra/students-api/internal/types"
)

var (
	errMalformed = errors.New("malformed directory response")
	errNoRecord  = errors.New("directory response holds no record")
)

// The directory has changed the shape of its listing more than once.
// Shapes are tried in this order, first match wins:
//
//	[ user, ... ]                                  flat array
//	{ "_embedded": { "<anyCollection>": [ ... ] } } HAL collection
//	{ "_embedded": [ ... ] }                       embedded array
//	{ "content": [ ... ] }                         page
//
// Inside a collection every element may be a plain user or a HATEOAS item
// { "content": user, "_links": {...} }. Unknown fields are ignored.
func decodeUserList(data []byte) ([]types.RemoteUser, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", errMalformed)
	}

	items, ok := collection(gjson.ParseBytes(data))
	if !ok {
		return nil, fmt.Errorf("%w: unrecognised listing envelope", errMalformed)
	}

	users := make([]types.RemoteUser, 0, len(items))
	for _, item := range items {
		user, err := decodeItem(item)
		if err != nil {
			// one bad element should not hide the rest of the listing
			continue
		}
		users = append(users, user)
	}

	return users, nil
}

func collection(root gjson.Result) ([]gjson.Result, bool) {
	if root.IsArray() {
		return root.Array(), true
	}
	if !root.IsObject() {
		return nil, false
	}

	embedded := root.Get("_embedded")
	if embedded.IsArray() {
		return embedded.Array(), true
	}
	if embedded.IsObject() {
		var items []gjson.Result
		found := false
		embedded.ForEach(func(_, value gjson.Result) bool {
			if value.IsArray() {
				items, found = value.Array(), true
				return false
			}
			return true
		})
		if found {
			return items, true
		}
	}

	if content := root.Get("content"); content.IsArray() {
		return content.Array(), true
	}

	return nil, false
}

// decodeUser decodes a single-record response: a plain user or a HATEOAS
// item. null, {} and an item without content yield errNoRecord.
func decodeUser(data []byte) (types.RemoteUser, error) {
	if !gjson.ValidBytes(data) {
		return types.RemoteUser{}, fmt.Errorf("%w: invalid JSON", errMalformed)
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		return types.RemoteUser{}, errNoRecord
	}

	user, err := decodeItem(root)
	if err != nil {
		return types.RemoteUser{}, err
	}
	if user.ID == 0 && user.Email == "" {
		return types.RemoteUser{}, errNoRecord
	}

	return user, nil
}

func decodeItem(item gjson.Result) (types.RemoteUser, error) {
	if !item.IsObject() {
		return types.RemoteUser{}, fmt.Errorf("%w: element is not an object", errMalformed)
	}

	if content := item.Get("content"); content.IsObject() {
		item = content
	} else if content.Exists() && content.Type == gjson.Null {
		return types.RemoteUser{}, errNoRecord
	}

	var user types.RemoteUser
	if err := json.Unmarshal([]byte(item.Raw), &user); err != nil {
		return types.RemoteUser{}, fmt.Errorf("%w: %v", errMalformed, err)
	}

	return user, nil
}
