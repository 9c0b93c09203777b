package bili

import "encoding/json"

// DefaultFace is the placeholder avatar when the sender's face URL is
// absent from the record.
const DefaultFace = "https://i0.hdslb.com/bfs/face/member/noface.jpg"

// DefaultUsername is the fallback display name.
const DefaultUsername = "未知"

// TranslateDanmu converts the positional DANMU_MSG info record into a
// ChatMessage. The record is a nested heterogeneous array; every field
// degrades to a documented default when missing or ill-typed, so a
// malformed message can never break the ingest loop.
//
// Layout (as actually emitted upstream, not as documented anywhere):
//
//	info[1]                     message text
//	info[2][0], info[2][1]      sender uid, sender name
//	info[0][15].user.base.face  avatar URL
//	info[3][0]                  guard tier; doubles as the fan-badge tier
//	info[3][3]                  room the fan badge belongs to
//
// The badge tier only counts when its room matches the joined room;
// loyalty earned elsewhere is deliberately ignored.
func TranslateDanmu(info []any, roomID int64) ChatMessage {
	msg := ChatMessage{
		Cmd:      "DANMU_MSG",
		Content:  asString(index(info, 1), ""),
		Username: DefaultUsername,
		Face:     DefaultFace,
	}

	if user := asArray(index(info, 2)); user != nil {
		msg.UID = asInt64(index(user, 0), 0)
		msg.Username = asString(index(user, 1), DefaultUsername)
	}

	if meta := asArray(index(info, 0)); meta != nil {
		if face := facePath(index(meta, 15)); face != "" {
			msg.Face = face
		}
	}

	medal := asArray(index(info, 3))
	msg.GuardLevel = int(asInt64(index(medal, 0), 0))
	if asInt64(index(medal, 3), -1) == roomID {
		msg.MedalLevel = int(asInt64(index(medal, 0), 0))
	}

	return msg
}

// ParseMessageBody decodes an OpMessage body and, when it is a DANMU_MSG,
// returns the translated chat event. Other commands return ("", false):
// gifts, entry effects and the rest of the firehose are not chat.
func ParseMessageBody(body []byte, roomID int64) (ChatMessage, bool) {
	var outer struct {
		Cmd  string `json:"cmd"`
		Info []any  `json:"info"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return ChatMessage{}, false
	}
	if outer.Cmd != "DANMU_MSG" {
		return ChatMessage{}, false
	}
	return TranslateDanmu(outer.Info, roomID), true
}

// facePath walks info[0][15].user.base.face defensively.
func facePath(v any) string {
	obj := asObject(v)
	user := asObject(obj["user"])
	base := asObject(user["base"])
	return asString(base["face"], "")
}

func index(arr []any, i int) any {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}

func asArray(v any) []any {
	arr, _ := v.([]any)
	return arr
}

func asObject(v any) map[string]any {
	obj, _ := v.(map[string]any)
	return obj
}

func asString(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func asInt64(v any, def int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return def
}
