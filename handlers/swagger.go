package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the OpenAPI description of the article API.
// - GET /swagger/index.html  -> Swagger UI page loading doc.json
// - GET /swagger/doc.json    -> OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>lumen articles API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "lumen articles", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Figure": { "type": "object", "properties": { "id": {"type":"string"}, "order": {"type":"integer"}, "imageRef": {"type":"string"}, "caption": {"type":"string"}, "altText": {"type":"string"} }, "required": ["imageRef"] },
      "Section": { "type": "object", "properties": { "id": {"type":"string"}, "order": {"type":"integer"}, "title": {"type":"string"}, "bodyMarkdown": {"type":"string"}, "figures": {"type":"array","items":{"$ref":"#/components/schemas/Figure"}} }, "required": ["title"] },
      "CreateArticle": { "type": "object", "properties": { "title": {"type":"string"}, "excerpt": {"type":"string"}, "coverImage": {"type":"string"}, "tags": {"type":"array","items":{"type":"string"}} }, "required": ["title"] }
    }
  },
  "paths": {
    "/api/articles": {
      "get": { "summary": "List published articles", "parameters": [ {"name":"page","in":"query","schema":{"type":"integer"}}, {"name":"pageSize","in":"query","schema":{"type":"integer"}} ], "responses": { "200": { "description": "page of articles" } } },
      "post": { "summary": "Create a draft article", "security": [{"bearer":[]}], "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/CreateArticle"} } } }, "responses": { "201": { "description": "created" }, "400": { "description": "validation" }, "409": { "description": "slug conflict" } } }
    },
    "/api/articles/drafts": {
      "get": { "summary": "List drafts", "security": [{"bearer":[]}], "responses": { "200": { "description": "page of drafts" } } }
    },
    "/api/articles/uploads": {
      "post": { "summary": "Upload a cover or figure image", "security": [{"bearer":[]}], "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"},"kind":{"type":"string","enum":["cover","figure"]},"documentId":{"type":"string"},"sectionId":{"type":"string"}}} } } }, "responses": { "201": { "description": "ref and presigned url" } } }
    },
    "/api/articles/admin/{id}": {
      "get": { "summary": "Get any article with sections and figures", "security": [{"bearer":[]}], "responses": { "200": { "description": "article" }, "404": { "description": "not found" } } }
    },
    "/api/articles/{slug}": {
      "get": { "summary": "Get a published article by slug or id", "responses": { "200": { "description": "article" }, "404": { "description": "not found" } } }
    },
    "/api/articles/{id}": {
      "patch": { "summary": "Edit title, excerpt or cover", "security": [{"bearer":[]}], "responses": { "200": { "description": "article" } } },
      "delete": { "summary": "Delete an article, its sections, figures and blobs", "security": [{"bearer":[]}], "responses": { "200": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/articles/{id}/sections": {
      "put": { "summary": "Reconcile the full section list", "security": [{"bearer":[]}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"sections":{"type":"array","items":{"$ref":"#/components/schemas/Section"}}}} } } }, "responses": { "200": { "description": "reconcile result" } } }
    },
    "/api/articles/{id}/publish": {
      "post": { "summary": "Publish or unpublish", "security": [{"bearer":[]}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"publish":{"type":"boolean"},"status":{"type":"string","enum":["draft","published"]}}} } } }, "responses": { "200": { "description": "article" } } }
    },
    "/api/auth/me": {
      "get": { "summary": "Caller identity", "security": [{"bearer":[]}], "responses": { "200": { "description": "principal" } } }
    },
    "/api/auth/revoke": {
      "post": { "summary": "Revoke the presented token", "security": [{"bearer":[]}], "responses": { "200": { "description": "revoked" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
