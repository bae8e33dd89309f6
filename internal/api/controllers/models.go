package controllers

import "github.com/datallboy/mediaq/internal/domain"

type ImageJobRequest struct {
	ContentID int64  `json:"content_id"`
	Title     string `json:"title"`
	Role      string `json:"role"`
	SourceURL string `json:"source_url"`
	Priority  int    `json:"priority"`
}

type HLSJobRequest struct {
	EpisodeID int64  `json:"episode_id"`
	Title     string `json:"title"`
	Number    int    `json:"number"`
	SourceURL string `json:"source_url"`
	Priority  int    `json:"priority"`
}

type EnqueuedResponse struct {
	ID string `json:"id"`
}

type JobListResponse struct {
	Jobs  []*domain.DownloadJob `json:"jobs"`
	Count int                   `json:"count"`
}

type ProcessResponse struct {
	Processed int `json:"processed"`
}

type StatsResponse struct {
	Counts domain.QueueStats `json:"counts"`
	Total  int               `json:"total"`
}
