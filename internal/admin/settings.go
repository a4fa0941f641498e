package admin

import (
	"context"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

// Settings editing follows a local-draft-vs-committed pattern: edits mutate
// the draft immediately so the view stays responsive; Save diffs the draft
// against the last committed snapshot and patches only what changed. The
// theme color is the one field applied immediately on change.

// LoadSettings fetches the committed settings and resets the draft to them.
func (c *Console) LoadSettings(ctx context.Context) (model.Settings, error) {
	settings, err := c.api.Settings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	c.mu.Lock()
	c.committed = settings
	c.draft = settings
	c.settingsLoaded = true
	c.mu.Unlock()
	c.notifyChange()
	return settings, nil
}

func (c *Console) Draft() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// EditDraft applies a mutation to the draft copy only; nothing is sent
// until SaveSettings.
func (c *Console) EditDraft(mutate func(*model.Settings)) {
	c.mu.Lock()
	mutate(&c.draft)
	c.mu.Unlock()
	c.notifyChange()
}

// SetThemeColor applies immediately: the patch goes out on change and the
// committed snapshot follows the server's response.
func (c *Console) SetThemeColor(ctx context.Context, color string) error {
	updated, err := c.api.UpdateSettings(ctx, dto.UpdateSettingsRequest{ThemeColor: &color})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.committed = updated
	c.draft.Widget.ThemeColor = updated.Widget.ThemeColor
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// SaveSettings diffs draft against committed and patches the changed
// fields. A no-op diff sends nothing.
func (c *Console) SaveSettings(ctx context.Context) error {
	c.mu.Lock()
	patch := diffSettings(c.committed, c.draft)
	c.mu.Unlock()

	if patch.Empty() {
		return nil
	}
	updated, err := c.api.UpdateSettings(ctx, patch)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.committed = updated
	c.draft = updated
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

func diffSettings(committed, draft model.Settings) dto.UpdateSettingsRequest {
	var patch dto.UpdateSettingsRequest
	if draft.Widget.BubbleText != committed.Widget.BubbleText {
		v := draft.Widget.BubbleText
		patch.BubbleText = &v
	}
	if draft.Widget.HeaderText != committed.Widget.HeaderText {
		v := draft.Widget.HeaderText
		patch.HeaderText = &v
	}
	if draft.Widget.ThemeColor != committed.Widget.ThemeColor {
		v := draft.Widget.ThemeColor
		patch.ThemeColor = &v
	}
	if draft.SupportHours != committed.SupportHours {
		v := draft.SupportHours
		patch.SupportHours = &v
	}
	if draft.MaxMessageLength != committed.MaxMessageLength {
		v := draft.MaxMessageLength
		patch.MaxMessageLength = &v
	}
	return patch
}
