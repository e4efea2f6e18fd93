// Package docs carries the admin HTTP surface's OpenAPI 2.0 spec, in the
// shape swag init emits (a swag.Spec registered under an instance name),
// served through swaggo/echo-swagger the way the teacher's handler package
// reads it via swag.ReadDoc. Hand-authored here rather than generated,
// since this engine has no build step invoking the swag CLI.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "sbc-pay-sub002 reconciliation engine",
        "description": "Admin surface for the payment reconciliation and invoice-dispatch engine: health, metrics, and manual job triggers.",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness/readiness probe",
                "responses": {
                    "200": {"description": "ok"}
                }
            }
        },
        "/internal/tasks/dispatch": {
            "post": {
                "summary": "Manually trigger the invoice dispatch pipeline",
                "security": [{"Auth0": []}],
                "responses": {
                    "200": {"description": "dispatch run completed"},
                    "500": {"description": "dispatch run failed"}
                }
            }
        },
        "/internal/tasks/eft-link": {
            "post": {
                "summary": "Manually trigger the EFT credit-link apply pass",
                "security": [{"Auth0": []}],
                "responses": {
                    "200": {"description": "run completed"},
                    "500": {"description": "run failed"}
                }
            }
        },
        "/internal/tasks/stream": {
            "get": {
                "summary": "Websocket stream of job/reconciler run events",
                "security": [{"Auth0": []}],
                "responses": {
                    "101": {"description": "switching protocols"}
                }
            }
        }
    },
    "securityDefinitions": {
        "Auth0": {
            "type": "oauth2",
            "flow": "application",
            "tokenUrl": "https://{domain}/oauth/token"
        }
    }
}`

// SwaggerInfo holds the spec metadata swag.Register needs.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "sbc-pay-sub002 reconciliation engine",
	Description:      "Admin surface for the payment reconciliation and invoice-dispatch engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
