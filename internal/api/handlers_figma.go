package api

import (
	"encoding/json"
	"net/http"

	platformerrors "github.com/collabhq/collabd/internal/errors"
)

type figmaRequest struct {
	FileKey     string `json:"fileKey"`
	NodeID      string `json:"nodeId"`
	AccessToken string `json:"accessToken"`
}

func (s *Server) handleFigmaLayers(w http.ResponseWriter, r *http.Request) {
	var req figmaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}

	layers, err := s.figma.Layers(r.Context(), req.FileKey, req.NodeID, req.AccessToken)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"success": true, "layers": layers})
}

func (s *Server) handleFigmaImage(w http.ResponseWriter, r *http.Request) {
	var req figmaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}

	imageURL, err := s.figma.Image(r.Context(), req.FileKey, req.NodeID, req.AccessToken)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"success": true, "imageUrl": imageURL})
}
