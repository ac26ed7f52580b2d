package peer

// SendRawText writes s onto the data channel without framing it.
func (c *Controller) SendRawText(s string) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil {
		return ErrNotConnected
	}
	return dc.SendText(s)
}
