package extract

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/xhad/minutemate/pkg/gcp"
	"github.com/xhad/minutemate/pkg/logger"
)

// VisionOCR runs DOCUMENT_TEXT_DETECTION on rendered pages.
type VisionOCR struct {
	client *vision.ImageAnnotatorClient
	log    *logger.Logger
}

func NewVisionOCR(ctx context.Context, projectID string, log *logger.Logger) (*VisionOCR, error) {
	if log == nil {
		log = logger.Nop()
	}
	c, err := vision.NewImageAnnotatorClient(ctx, gcp.ClientOptionsFromEnv(projectID)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionOCR{client: c, log: log.With("component", "extract.vision")}, nil
}

func (v *VisionOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	return annotationText(resp)
}

func annotationText(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		return "", nil
	}
	return strings.TrimSpace(r0.FullTextAnnotation.Text), nil
}

func (v *VisionOCR) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}
