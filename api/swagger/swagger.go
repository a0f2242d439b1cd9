package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FitClass API",
        "description": "Class scheduling and seat booking for a fitness studio",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Sessions", "description": "Class session schedule"},
        {"name": "Trainers", "description": "Trainer schedules and exports"},
        {"name": "Bookings", "description": "Trainee seat reservations"}
    ],
    "paths": {
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List class sessions",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "description": "YYYY-MM-DD"},
                    {"name": "start_time", "in": "query", "type": "string", "description": "hh:mm AM|PM"},
                    {"name": "trainer_id", "in": "query", "type": "string"},
                    {"name": "search_term", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort_by", "in": "query", "type": "string", "enum": ["created_at", "date", "start_time", "seat_count"]},
                    {"name": "sort_order", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid time format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Schedule a class session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Daily session cap reached", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}": {
            "put": {
                "tags": ["Sessions"],
                "summary": "Update a class session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Schedule conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Delete a session without bookings",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session still has bookings", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/trainer": {
            "put": {
                "tags": ["Sessions"],
                "summary": "Assign a trainer to a session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignTrainerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Trainer double booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/trainers/{id}/sessions": {
            "get": {
                "tags": ["Trainers"],
                "summary": "List a trainer's sessions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Trainer not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/trainers/{id}/sessions/export": {
            "get": {
                "tags": ["Trainers"],
                "summary": "Download a trainer's schedule",
                "produces": ["text/csv", "application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Book a seat in a session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Full or overlapping", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings/me": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List the caller's bookings",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings/{id}": {
            "delete": {
                "tags": ["Bookings"],
                "summary": "Cancel a booking",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateSessionRequest": {
            "type": "object",
            "required": ["date", "start_time"],
            "properties": {
                "date": {"type": "string", "example": "2025-06-01"},
                "start_time": {"type": "string", "example": "10:00 AM"},
                "trainer_id": {"type": "string"}
            }
        },
        "UpdateSessionRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "start_time": {"type": "string"},
                "trainer_id": {"type": "string"}
            }
        },
        "AssignTrainerRequest": {
            "type": "object",
            "required": ["trainer_id"],
            "properties": {
                "trainer_id": {"type": "string"}
            }
        },
        "BookSessionRequest": {
            "type": "object",
            "required": ["session_id"],
            "properties": {
                "session_id": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
