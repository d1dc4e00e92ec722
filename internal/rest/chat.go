package rest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chatsync/internal/model"
)

// FetchConversations returns one page of the operator's conversation list.
func (c *Client) FetchConversations(ctx context.Context, page, limit int) (model.ConversationPage, error) {
	if c.baseURL == "" {
		return model.ConversationPage{}, nil
	}
	var out model.ConversationPage
	err := c.get(ctx, "/api/chat/conversations", pageQuery(page, limit), &out)
	return out, err
}

// FetchMessages returns one history page of a conversation, oldest first
// within the page.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, limit int) (model.MessagePage, error) {
	if c.baseURL == "" {
		return model.MessagePage{}, nil
	}
	var out model.MessagePage
	path := "/api/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := c.get(ctx, path, pageQuery(page, limit), &out)
	return out, err
}

// MarkRead tells the platform the operator has read a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	if c.baseURL == "" {
		return nil
	}
	path := "/api/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("POST %s: %d", path, resp.StatusCode)
	}
	return nil
}
