package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/consult"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/scan"
	"github.com/kalambet/sillage/internal/storage"
)

const maxMCPImageSize = 10 << 20

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Scanner Scanner
	Consult Consultant
}

// NewMCPServer creates an MCP server with all sillage tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sillage",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sillage identifies perfumes from bottle photos and keeps each user's collection."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("identify_perfume",
			mcp.WithDescription("Identify the perfume in a bottle photo and add it to the user's collection."),
			mcp.WithString("user_id", mcp.Description("Owner of the collection"), mcp.Required()),
			mcp.WithString("path", mcp.Description("Local path to a JPEG/PNG photo")),
			mcp.WithString("image_base64", mcp.Description("Base64 photo bytes, used when path is empty")),
			mcp.WithString("mime_type", mcp.Description("MIME type of image_base64 (default image/jpeg)")),
		),
		mcpIdentifyPerfume(deps),
	)

	s.AddTool(
		mcp.NewTool("consult_expert",
			mcp.WithDescription("Ask the perfume sommelier about one collected perfume or the whole collection."),
			mcp.WithString("user_id", mcp.Description("Owner of the collection"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("perfume_id", mcp.Description("Collection item id; omit to ask about the whole collection")),
			mcp.WithString("user_context", mcp.Description("Occasion, climate or other context")),
		),
		mcpConsultExpert(deps),
	)

	s.AddTool(
		mcp.NewTool("list_collection",
			mcp.WithDescription("List the perfumes in a user's collection, newest first."),
			mcp.WithString("user_id", mcp.Description("Owner of the collection"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 20)")),
		),
		mcpListCollection(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"collection://{user_id}",
			"User Collection",
			mcp.WithTemplateDescription("A user's perfume collection as JSON"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceCollection(deps),
	)

	return s
}

func mcpIdentifyPerfume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uid, err := req.RequireString("user_id")
		if err != nil || strings.TrimSpace(uid) == "" {
			return mcpError("user_id is required"), nil
		}

		frame, err := mcpFrame(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		out, err := deps.Scanner.Scan(ctx, scan.Request{UserID: uid, Frame: frame})
		var denied *quota.DeniedError
		if errors.As(err, &denied) {
			return mcpError(denied.Reason), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("scan failed: %v", err)), nil
		}

		if out.Result.Kind != analysis.KindIdentified {
			return mcpText(out.Result.Message()), nil
		}

		b, err := json.Marshal(out.Item)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal item: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFrame(req mcp.CallToolRequest) (analysis.Frame, error) {
	var data []byte
	mime := req.GetString("mime_type", "")

	if path := req.GetString("path", ""); path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return analysis.Frame{}, fmt.Errorf("reading %s: %v", path, err)
		}
		if info.Size() > maxMCPImageSize {
			return analysis.Frame{}, fmt.Errorf("%s is larger than %d bytes", path, maxMCPImageSize)
		}
		if data, err = os.ReadFile(path); err != nil {
			return analysis.Frame{}, fmt.Errorf("reading %s: %v", path, err)
		}
	} else if enc := req.GetString("image_base64", ""); enc != "" {
		var err error
		if data, err = base64.StdEncoding.DecodeString(enc); err != nil {
			return analysis.Frame{}, errors.New("image_base64 is not valid base64")
		}
	} else {
		return analysis.Frame{}, errors.New("one of path or image_base64 is required")
	}

	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return analysis.Frame{Image: data, MIMEType: mime, CapturedAt: time.Now().UTC()}, nil
}

func mcpConsultExpert(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uid, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		q := consult.Question{UserID: uid, Question: question, UserContext: req.GetString("user_context", "")}
		if id := req.GetString("perfume_id", ""); id != "" {
			item, err := loadItem(deps.Store, uid, id)
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("collection item %s not found", id)), nil
			}
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load item: %v", err)), nil
			}
			q.Perfume = &item.AIData.Identification
		} else {
			items, err := loadItems(deps.Store, uid, 100)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load collection: %v", err)), nil
			}
			q.Collection = items
		}

		ans, err := deps.Consult.Ask(ctx, q)
		var denied *quota.DeniedError
		if errors.As(err, &denied) {
			return mcpError(denied.Reason), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("consultation failed: %v", err)), nil
		}
		return mcpText(ans.Text), nil
	}
}

type itemSummary struct {
	ID              string `json:"id"`
	Brand           string `json:"brand"`
	Name            string `json:"name"`
	OlfactoryFamily string `json:"olfactory_family,omitempty"`
	Rating          int    `json:"rating,omitempty"`
	PhotoURL        string `json:"photo_url"`
	CreatedAt       string `json:"created_at"`
}

func summarizeCollection(store *storage.Store, uid string, limit int) ([]byte, error) {
	items, err := loadItems(store, uid, limit)
	if err != nil {
		return nil, err
	}
	out := make([]itemSummary, len(items))
	for i, it := range items {
		out[i] = itemSummary{
			ID:              it.ID,
			Brand:           it.AIData.Brand,
			Name:            it.AIData.Name,
			OlfactoryFamily: it.AIData.OlfactoryFamily,
			PhotoURL:        it.PhotoURL,
			CreatedAt:       it.CreatedAt.Format(time.RFC3339),
		}
		if it.AIData.UserReview != nil {
			out[i].Rating = it.AIData.UserReview.Rating
		}
	}
	return json.Marshal(out)
}

func mcpListCollection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uid, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		b, err := summarizeCollection(deps.Store, uid, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list collection: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCollection(deps MCPDeps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uid := strings.TrimPrefix(req.Params.URI, "collection://")
		if uid == "" || uid == req.Params.URI {
			return nil, fmt.Errorf("invalid collection URI %q", req.Params.URI)
		}

		b, err := summarizeCollection(deps.Store, uid, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list collection: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
