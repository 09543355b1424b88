// Package docs registers the OpenAPI document of the wallpad REST API with
// swag, for the Swagger UI served at /swagger/index.html. Keep it in step
// with the @Router annotations in pkg/api/handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Reports the bus link and how many devices are registered and online",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}},
                    "503": {"description": "Bus disconnected", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/devices": {
            "get": {
                "description": "Returns every registered bus device with its confirmed state",
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "List devices",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ListDevicesResponse"}},
                    "500": {"description": "Controller error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/devices/{id}": {
            "get": {
                "description": "Returns one device by bus address or name",
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Get device details",
                "parameters": [
                    {"type": "string", "description": "Bus address (e.g. 0E:11) or name", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DeviceResponse"}},
                    "404": {"description": "Device not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Rename a device",
                "parameters": [
                    {"type": "string", "description": "Bus address (e.g. 0E:11) or name", "name": "id", "in": "path", "required": true},
                    {"description": "New name", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.RenameDeviceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DeviceResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Device not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Name in use", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Forgets a device; it is learned again if it answers during discovery",
                "tags": ["devices"],
                "summary": "Remove a device",
                "parameters": [
                    {"type": "string", "description": "Bus address (e.g. 0E:11) or name", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "Remove even while a control request is in flight", "name": "force", "in": "query"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Device not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Control request in flight", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/devices/{id}/state": {
            "get": {
                "description": "Returns the confirmed state of a bus device",
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Get device state",
                "parameters": [
                    {"type": "string", "description": "Bus address (e.g. 0E:11) or name", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StateResponse"}},
                    "404": {"description": "Device not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Bus disconnected", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Requests new property values, validated against the device's state_schema; the device confirms asynchronously",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Set device state",
                "parameters": [
                    {"type": "string", "description": "Bus address (e.g. 0E:11) or name", "name": "id", "in": "path", "required": true},
                    {"description": "Properties to change", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StateResponse"}},
                    "400": {"description": "Invalid state", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Device not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Declined by the device", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Bus disconnected", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/discovery/start": {
            "post": {
                "description": "Probes unknown bus addresses and registers the devices that answer",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "Start discovery",
                "parameters": [
                    {"description": "Duration (default 120, max 600 seconds)", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/types.StartDiscoveryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StartDiscoveryResponse"}},
                    "400": {"description": "Invalid duration", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Bus disconnected", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/discovery/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "Stop discovery",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StopDiscoveryResponse"}}
                }
            }
        },
        "/discovery/events": {
            "get": {
                "description": "Server-Sent Events: device_detected, device_renamed, device_removed, device_lost, device_recovered and heartbeat",
                "produces": ["text/event-stream"],
                "tags": ["discovery"],
                "summary": "Device event stream",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "types.DeviceResponse": {
            "type": "object",
            "properties": {
                "device": {"$ref": "#/definitions/types.DeviceWithState"}
            }
        },
        "types.DeviceWithState": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "name": {"type": "string"},
                "type": {"type": "string"},
                "manufacturer": {"type": "string"},
                "model": {"type": "string"},
                "connected": {"type": "boolean"},
                "last_seen": {"type": "string", "format": "date-time"},
                "state_schema": {"type": "object"},
                "exposes": {"type": "object", "additionalProperties": true},
                "state": {"type": "object", "additionalProperties": true}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "fields": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "bus": {"type": "string"},
                "devices": {"type": "integer"},
                "online": {"type": "integer"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "types.ListDevicesResponse": {
            "type": "object",
            "properties": {
                "devices": {"type": "array", "items": {"$ref": "#/definitions/types.DeviceWithState"}},
                "count": {"type": "integer"}
            }
        },
        "types.RenameDeviceRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"}
            }
        },
        "types.StartDiscoveryRequest": {
            "type": "object",
            "properties": {
                "duration_seconds": {"type": "integer"}
            }
        },
        "types.StartDiscoveryResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "expires_at": {"type": "string", "format": "date-time"},
                "duration_seconds": {"type": "integer"}
            }
        },
        "types.StateResponse": {
            "type": "object",
            "properties": {
                "device": {"type": "string"},
                "state": {"type": "object", "additionalProperties": true},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "types.StopDiscoveryResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds the exported document metadata. cmd/api sets Host to
// the configured listen address.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Wallpad API",
	Description:      "REST API for devices on a KS X 4506 home-network bus",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
