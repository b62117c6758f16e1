// Package devserver registers the dev server's OpenAPI document with swag.
package devserver

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}}
            }
        },
        "/users": {
            "post": {
                "security": [{"BasicAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Create a user",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.CreateUserRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.CreateUserResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            }
        },
        "/users/me/status": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Set recruiting status",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.UpdateStatusRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.UserResponse"}},
                    "409": {"description": "Caller has an active match", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            }
        },
        "/users/recruiting": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "List recruiting users",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.UserResponse"}}}}
            }
        },
        "/likes": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Like a user",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.LikeRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.LikeResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            }
        },
        "/matches/current": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Current match",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MatchState"}}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Cancel the current match",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}},
                    "404": {"description": "No active match", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            }
        },
        "/matches/{id}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Message history",
                "parameters": [{"type": "integer", "in": "path", "name": "id", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Message"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Send a message",
                "parameters": [
                    {"type": "integer", "in": "path", "name": "id", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.SendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Message"}},
                    "409": {"description": "Match no longer active", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/wrapper.JSONResult"}}
                }
            }
        }
    },
    "definitions": {
        "dto.CreateUserRequest": {"type": "object", "properties": {"name": {"type": "string", "example": "Sari"}}},
        "dto.CreateUserResponse": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "token": {"type": "string"}}},
        "dto.UpdateStatusRequest": {"type": "object", "properties": {"recruiting": {"type": "boolean"}}},
        "dto.UserResponse": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "recruiting": {"type": "boolean"}}},
        "dto.LikeRequest": {"type": "object", "properties": {"target_id": {"type": "string"}}},
        "dto.LikeResponse": {"type": "object", "properties": {"matched": {"type": "boolean"}, "match_id": {"type": "integer"}}},
        "dto.SendMessageRequest": {"type": "object", "properties": {"body": {"type": "string"}}},
        "models.Partner": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}}},
        "models.MatchState": {"type": "object", "properties": {
            "matched": {"type": "boolean"},
            "match_id": {"type": "integer"},
            "partner": {"$ref": "#/definitions/models.Partner"},
            "created_at": {"type": "string"}
        }},
        "models.Message": {"type": "object", "properties": {
            "id": {"type": "integer"},
            "match_id": {"type": "integer"},
            "sender_id": {"type": "string"},
            "body": {"type": "string"},
            "created_at": {"type": "string"}
        }},
        "wrapper.ErrorBody": {"type": "object", "properties": {"code": {"type": "string"}, "message": {"type": "string"}}},
        "wrapper.JSONResult": {"type": "object", "properties": {
            "status": {"type": "integer"},
            "data": {},
            "error": {"$ref": "#/definitions/wrapper.ErrorBody"}
        }}
    },
    "securityDefinitions": {
        "BasicAuth": {"type": "basic"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Lunch Match - Dev Server API",
	Description:      "Reference collaborator serving the users, likes, matches and messages resources polled by lunchsync.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
