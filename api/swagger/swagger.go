package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Scolara Admission API",
        "description": "Admission workflow and analytics engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sessions", "description": "Admission session lifecycle"},
        {"name": "Enquiries", "description": "Enquiry pipeline state machine"},
        {"name": "Analytics", "description": "Funnel, conversion and trend aggregates"},
        {"name": "Exports", "description": "CSV/PDF snapshot downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/admission-sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List admission sessions",
                "parameters": [
                    {"name": "workflow_type", "in": "query", "type": "string", "enum": ["SIMPLE", "STANDARD", "COMPLEX"]},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Open an admission session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/admission-sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get admission session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admission-sessions/{id}/close": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Close an admission session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already closed"}
                }
            }
        },
        "/enquiries": {
            "get": {
                "tags": ["Enquiries"],
                "summary": "List enquiries",
                "parameters": [
                    {"name": "session_id", "in": "query", "type": "string"},
                    {"name": "stage", "in": "query", "type": "string"},
                    {"name": "source", "in": "query", "type": "string"},
                    {"name": "outcome", "in": "query", "type": "string", "enum": ["ACTIVE", "ENROLLED", "REJECTED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enquiries"],
                "summary": "Register an enquiry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnquiryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Session closed or missing"}
                }
            }
        },
        "/enquiries/{id}": {
            "get": {
                "tags": ["Enquiries"],
                "summary": "Get enquiry with transition history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/enquiries/{id}/advance": {
            "post": {
                "tags": ["Enquiries"],
                "summary": "Advance enquiry to the next stage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvanceEnquiryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification"},
                    "422": {"description": "Illegal transition"}
                }
            }
        },
        "/enquiries/{id}/reject": {
            "post": {
                "tags": ["Enquiries"],
                "summary": "Reject an enquiry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectEnquiryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Already terminal"}
                }
            }
        },
        "/enquiries/{id}/bypass": {
            "post": {
                "tags": ["Enquiries"],
                "summary": "Skip enquiry ahead to a later stage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BypassEnquiryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing bypass reason"},
                    "403": {"description": "Role not allowed to bypass"},
                    "422": {"description": "Illegal transition"}
                }
            }
        },
        "/analytics/funnel": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Per-stage funnel for a session",
                "parameters": [
                    {"name": "session_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Session belongs to another school", "schema": {"$ref": "#/definitions/APIError"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/analytics/conversion": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Stage-to-stage conversion rates for a session",
                "parameters": [
                    {"name": "session_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Session belongs to another school", "schema": {"$ref": "#/definitions/APIError"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/analytics/workflows": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Workflow type comparison for a school",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/fees": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Fee collection summary for a school",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/bypasses": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Bypass usage summary for a school",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/sources": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Enquiry source performance, best converting first",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/trends": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Monthly enquiry trends",
                "parameters": [
                    {"name": "months", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/export/funnel": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download the session funnel as CSV or PDF",
                "parameters": [
                    {"name": "session_id", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "403": {"description": "Session belongs to another school", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/analytics/export/sources": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download source performance as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        }
    },
    "definitions": {
        "AdmissionSession": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "school_id": {"type": "string"},
                "workflow_type": {"type": "string", "enum": ["SIMPLE", "STANDARD", "COMPLEX"]},
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "is_active": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "Enquiry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "session_id": {"type": "string"},
                "source": {"type": "string"},
                "current_stage_key": {"type": "string"},
                "enrolled_at": {"type": "string"},
                "rejected_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "StageTransition": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "enquiry_id": {"type": "string"},
                "from_stage_key": {"type": "string"},
                "to_stage_key": {"type": "string"},
                "actor_id": {"type": "string"},
                "occurred_at": {"type": "string"},
                "was_bypass": {"type": "boolean"},
                "bypass_reason": {"type": "string"}
            }
        },
        "CreateSessionRequest": {
            "type": "object",
            "properties": {
                "school_id": {"type": "string"},
                "workflow_type": {"type": "string", "enum": ["SIMPLE", "STANDARD", "COMPLEX"]},
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"}
            },
            "required": ["workflow_type", "name", "start_date"]
        },
        "CreateEnquiryRequest": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "source": {"type": "string", "enum": ["WALK_IN", "REFERRAL", "WEBSITE", "PHONE", "AD_CAMPAIGN", "OTHER"]}
            },
            "required": ["session_id", "source"]
        },
        "AdvanceEnquiryRequest": {
            "type": "object",
            "properties": {
                "to_stage": {"type": "string"}
            },
            "required": ["to_stage"]
        },
        "RejectEnquiryRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "BypassEnquiryRequest": {
            "type": "object",
            "properties": {
                "to_stage": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["to_stage", "reason"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
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
