package gameclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/danpark-dev/mafiasync/internal/game"
)

// ActionRequest is the body of an action submission.
type ActionRequest struct {
	Type     game.ActionType `json:"type"`
	ActorID  string          `json:"actorId"`
	TargetID string          `json:"targetId"`
}

// ChatRequest is the body of a chat send.
type ChatRequest struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

type rosterResponse struct {
	Participants []game.Participant `json:"participants"`
}

type investigationsResponse struct {
	Results []game.InvestigationRecord `json:"results"`
}

// FetchSessionState retrieves the authoritative session view.
func (c *Client) FetchSessionState(ctx context.Context, sessionID string) (*game.Session, error) {
	var session game.Session
	if err := c.getJSON(ctx, fmt.Sprintf("/sessions/%s", sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// FetchRole retrieves the local participant's own role and vitality.
func (c *Client) FetchRole(ctx context.Context, sessionID, participantID string) (*game.RoleInfo, error) {
	var info game.RoleInfo
	endpoint := fmt.Sprintf("/sessions/%s/role?participantId=%s", sessionID, url.QueryEscape(participantID))
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchRoster retrieves the full participant list.
func (c *Client) FetchRoster(ctx context.Context, sessionID string) ([]game.Participant, error) {
	var resp rosterResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/sessions/%s/participants", sessionID), &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// SubmitAction registers a vote, kill, heal, investigation or final vote.
// Business refusals come back as *Rejection.
func (c *Client) SubmitAction(ctx context.Context, sessionID string, req ActionRequest) error {
	return c.postJSON(ctx, fmt.Sprintf("/sessions/%s/actions", sessionID), req, nil)
}

// RequestPhaseAdvance asks the server to move the session to the next
// phase. The server is the sole authority; the response describes the phase
// it actually chose.
func (c *Client) RequestPhaseAdvance(ctx context.Context, sessionID string) (*game.NextPhase, error) {
	var next game.NextPhase
	if err := c.postJSON(ctx, fmt.Sprintf("/sessions/%s/next-phase", sessionID), nil, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// FetchVoteTally retrieves the authoritative tally for one day count.
func (c *Client) FetchVoteTally(ctx context.Context, sessionID string, dayCount int) (*game.VoteTally, error) {
	var tally game.VoteTally
	endpoint := fmt.Sprintf("/sessions/%s/votes?dayCount=%d", sessionID, dayCount)
	if err := c.getJSON(ctx, endpoint, &tally); err != nil {
		return nil, err
	}
	tally.DayCount = dayCount
	return &tally, nil
}

// FetchInvestigationResults retrieves all investigation records the server
// holds for the given investigator.
func (c *Client) FetchInvestigationResults(ctx context.Context, sessionID, participantID string) ([]game.InvestigationRecord, error) {
	var resp investigationsResponse
	endpoint := fmt.Sprintf("/sessions/%s/investigations?participantId=%s", sessionID, url.QueryEscape(participantID))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SendChat posts a chat line into the given scope.
func (c *Client) SendChat(ctx context.Context, sessionID string, channel game.ChatChannel, req ChatRequest) (*game.ChatMessage, error) {
	var msg game.ChatMessage
	endpoint := fmt.Sprintf("/sessions/%s/chat/%s", sessionID, channel)
	if err := c.postJSON(ctx, endpoint, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchChatHistory retrieves the message history of one scope.
func (c *Client) FetchChatHistory(ctx context.Context, sessionID string, channel game.ChatChannel, participantID string) ([]game.ChatMessage, error) {
	var messages []game.ChatMessage
	endpoint := fmt.Sprintf("/sessions/%s/chat/%s?participantId=%s", sessionID, channel, url.QueryEscape(participantID))
	if err := c.getJSON(ctx, endpoint, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
