package http

import "chatbroker/internal/store"

// UserResponse is the wire form of a user.
type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// GroupResponse is the wire form of a group.
type GroupResponse struct {
	Name      string   `json:"name"`
	CreatorID string   `json:"creator_id"`
	MemberIDs []string `json:"member_ids"`
	CreatedTS int64    `json:"created_ts"`
}

// MessageResponse is the wire form of a stored message.
type MessageResponse struct {
	MessageID   string   `json:"message_id"`
	FromUserID  string   `json:"from_user_id"`
	To          string   `json:"to"`
	Text        string   `json:"text"`
	SentTS      int64    `json:"sent_ts"`
	IsGroup     bool     `json:"is_group"`
	DeliveredTo []string `json:"delivered_to"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, DisplayName: u.DisplayName}
}

func toUserResponses(users []*store.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

func toGroupResponse(g *store.Group) GroupResponse {
	return GroupResponse{
		Name:      g.Name,
		CreatorID: g.CreatorID,
		MemberIDs: g.MemberIDs,
		CreatedTS: g.CreatedTS,
	}
}

func toGroupResponses(groups []*store.Group) []GroupResponse {
	out := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}
	return out
}

func toMessageResponses(msgs []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			MessageID:   m.MessageID,
			FromUserID:  m.FromUserID,
			To:          m.To,
			Text:        m.Text,
			SentTS:      m.SentTS,
			IsGroup:     m.IsGroup,
			DeliveredTo: m.DeliveredTo,
		})
	}
	return out
}
