package models

type ChartOutcome struct {
	Success   bool   `json:"success"`
	UUID      string `json:"uuid,omitempty"`
	Code      string `json:"code,omitempty"`
	FigPath   string `json:"fig_path,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}
