package service

// ApplyResult folds one probe outcome into s and returns the updated copy.
// The input is left untouched, including its History backing array.
// The next probe is always one interval after the observation; failures do not back off.
func ApplyResult(s Service, res ProbeResult) Service {
	out := s

	observed := res.ObservedAt
	next := observed.Add(s.Interval())

	status := StatusOffline
	if res.Success {
		status = StatusOnline
		out.SuccessfulProbes = s.SuccessfulProbes + 1
	}

	out.LastProbeAt = &observed
	out.NextProbeAt = &next
	out.Status = status
	out.LastResponseTimeMs = res.LatencyMs
	out.TotalProbes = s.TotalProbes + 1

	rec := ProbeRecord{
		Timestamp:      observed,
		Status:         status,
		ResponseTimeMs: res.LatencyMs,
		Error:          res.ErrorMessage,
	}
	if res.HTTPStatus != nil {
		code := *res.HTTPStatus
		rec.StatusCode = &code
	}

	hist := make([]ProbeRecord, len(s.History), len(s.History)+1)
	copy(hist, s.History)
	out.History = append(hist, rec)
	return out
}

// PendingHistory returns the records that have not been assigned a store ID yet.
func PendingHistory(s Service) []ProbeRecord {
	var out []ProbeRecord
	for _, r := range s.History {
		if r.ID == 0 {
			out = append(out, r)
		}
	}
	return out
}
