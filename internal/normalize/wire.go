package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/chatsync/internal/model"
)

// The upstream platform emits two message shapes: nested (a "message" object
// under the payload root) and flat (message fields spread on the root, body in
// the "message" string). The discriminator is the JSON type of "message".

// wireID accepts the id representations seen upstream: a plain string, a
// number, or an object wrapper ({"$oid": "..."} / {"_id": "..."}).
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*w = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = wireID(s)
	case '{':
		var obj struct {
			OID string `json:"$oid"`
			ID  string `json:"_id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.OID != "" {
			*w = wireID(obj.OID)
		} else {
			*w = wireID(obj.ID)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*w = wireID(n.String())
	}
	return nil
}

// wireTime accepts RFC3339 strings and unix milliseconds.
type wireTime struct {
	time.Time
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		w.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			w.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			// Some payloads omit the timezone.
			t, err = time.Parse("2006-01-02T15:04:05", s)
			if err != nil {
				w.Time = time.Time{}
				return nil
			}
		}
		w.Time = t
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		w.Time = time.Time{}
		return nil
	}
	w.Time = time.UnixMilli(ms).UTC()
	return nil
}

// wireParticipant tolerates both field-name conventions seen upstream.
type wireParticipant struct {
	UserID      wireID `json:"userId"`
	ID          wireID `json:"_id"`
	Avatar      string `json:"avatar"`
	AvatarURL   string `json:"avatarUrl"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

func (p *wireParticipant) toModel() model.Participant {
	out := model.Participant{
		UserID:      string(p.UserID),
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
	}
	if out.UserID == "" {
		out.UserID = string(p.ID)
	}
	if out.DisplayName == "" {
		out.DisplayName = p.Name
	}
	if out.Avatar == "" {
		out.Avatar = p.AvatarURL
	}
	return out
}

// CanonicalConversationID reduces the raw conversation id to the canonical
// string form used for all identity comparisons. Raw ids for the same logical
// conversation arrive with varying case and sometimes wrapped in an
// ObjectID("...") literal.
func CanonicalConversationID(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, `ObjectID("`); ok {
		s = strings.TrimSuffix(rest, `")`)
	}
	return strings.ToLower(s)
}
