package llm

// CollectStream drains a stream channel into a Response.
// It blocks until the channel is closed.
func CollectStream(ch <-chan StreamEvent) Response {
	var resp Response
	var text string
	for ev := range ch {
		switch ev.Type {
		case StreamEventDelta:
			text += ev.Text
		case StreamEventComplete:
			if ev.Response != nil {
				resp = *ev.Response
			}
		}
	}
	// If no complete event was received, build the response from accumulated text.
	if resp.StopReason == "" {
		resp.Text = text
		resp.StopReason = StopReasonEndTurn
	}
	return resp
}
