// File: api/schemas/requests.go
package schemas

// Request bodies for the action endpoints. Every action addresses the current
// session explicitly through SID; requests without one fail validation before
// any admission work happens.

type StartSessionRequest struct {
	Headless *bool `json:"headless,omitempty"`
}

type NavigateRequest struct {
	SID string `json:"sid"`
	URL string `json:"url"`
}

type ClickRequest struct {
	SID      string `json:"sid"`
	Selector string `json:"selector"`
}

type TypeRequest struct {
	SID      string `json:"sid"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type ScrollRequest struct {
	SID       string `json:"sid"`
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`
}

type HistoryRequest struct {
	SID       string `json:"sid"`
	Direction string `json:"direction"`
}

// ClickXYRequest carries client-display coordinates plus the dimensions needed
// to map them onto the page viewport. Each dimension is accepted under any of
// its wire spellings (`viewportW`, `viewport_w`, `viewport_width`, and the
// natural* equivalents); UnmarshalJSON folds them into the canonical fields.
type ClickXYRequest struct {
	SID       string  `json:"sid"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ViewportW float64 `json:"viewportW"`
	ViewportH float64 `json:"viewportH"`
	NaturalW  float64 `json:"naturalW,omitempty"`
	NaturalH  float64 `json:"naturalH,omitempty"`
}

// UnmarshalJSON normalizes the alias key spellings clients use for the
// viewport and natural dimensions. The first non-zero spelling wins.
func (r *ClickXYRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		SID string  `json:"sid"`
		X   float64 `json:"x"`
		Y   float64 `json:"y"`

		ViewportW     float64 `json:"viewportW"`
		ViewportWSep  float64 `json:"viewport_w"`
		ViewportWLong float64 `json:"viewport_width"`
		ViewportH     float64 `json:"viewportH"`
		ViewportHSep  float64 `json:"viewport_h"`
		ViewportHLong float64 `json:"viewport_height"`

		NaturalW     float64 `json:"naturalW"`
		NaturalWSep  float64 `json:"natural_w"`
		NaturalWLong float64 `json:"naturalWidth"`
		NaturalH     float64 `json:"naturalH"`
		NaturalHSep  float64 `json:"natural_h"`
		NaturalHLong float64 `json:"naturalHeight"`
	}
	if err := wireJSON.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.SID, r.X, r.Y = raw.SID, raw.X, raw.Y
	r.ViewportW = firstNonZero(raw.ViewportW, raw.ViewportWSep, raw.ViewportWLong)
	r.ViewportH = firstNonZero(raw.ViewportH, raw.ViewportHSep, raw.ViewportHLong)
	r.NaturalW = firstNonZero(raw.NaturalW, raw.NaturalWSep, raw.NaturalWLong)
	r.NaturalH = firstNonZero(raw.NaturalH, raw.NaturalHSep, raw.NaturalHLong)
	return nil
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Response bodies. Success payloads always carry ok=true; the error envelope
// is the only shape carrying ok=false.

type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   Code   `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status"`
	BrowserOpen bool   `json:"browser_open"`
	Sessions    int    `json:"sessions"`
	InFlight    int    `json:"in_flight"`
	Capacity    int    `json:"capacity"`
}

type StartSessionResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
	Headless  bool   `json:"headless"`
	Message   string `json:"message"`
}

type CloseSessionResponse struct {
	OK      bool   `json:"ok"`
	Closed  bool   `json:"closed"`
	Message string `json:"message"`
}

type MessageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type ClickXYResponse struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Hit     *HitTestResult `json:"hit"`
}

type DomResponse struct {
	OK     bool   `json:"ok"`
	Dom    string `json:"dom"`
	Length int    `json:"length"`
	Title  string `json:"title,omitempty"`
}

type ScreenshotResponse struct {
	OK     bool   `json:"ok"`
	File   string `json:"file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type RecentEventsResponse struct {
	OK     bool    `json:"ok"`
	Events []Event `json:"events"`
}
