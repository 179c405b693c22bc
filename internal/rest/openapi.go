package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const openAPITag = "IconService"

const openAPIHeader = `openapi: 3.0.3
info:
  title: urfiles
  description: Stores PNG and JPEG icons grouped by service.
  version: "1.0"
tags:
  - name: %s
paths: {}
`

const iconPathsTemplate = `%[1]s/{service}:
  get:
    tags: [%[2]s]
    summary: List icons
    description: Lists the indexed icons of a service ordered by name
    parameters:
      - $ref: '#/components/parameters/service'
    responses:
      '200':
        description: Icons of the service
        content:
          application/json:
            schema:
              type: object
              properties:
                service:
                  type: string
                icons:
                  type: array
                  items:
                    $ref: '#/components/schemas/Icon'
      '400':
        description: Invalid service name
%[1]s/{service}/{name}:
  parameters:
    - $ref: '#/components/parameters/service'
    - $ref: '#/components/parameters/name'
  get:
    tags: [%[2]s]
    summary: Download icon
    responses:
      '200':
        description: The stored icon bytes
        content:
          image/png:
            schema:
              type: string
              format: binary
          image/jpeg:
            schema:
              type: string
              format: binary
      '404':
        description: Icon not found
  post:
    tags: [%[2]s]
    summary: Upload icon
    description: Stores a new icon. Fails if the icon already exists.
    requestBody:
      $ref: '#/components/requestBodies/IconUpload'
    responses:
      '201':
        description: Icon stored
        headers:
          Location:
            schema:
              type: string
      '400':
        $ref: '#/components/responses/Rejected'
      '500':
        description: Icon could not be stored
  put:
    tags: [%[2]s]
    summary: Overwrite icon
    requestBody:
      $ref: '#/components/requestBodies/IconUpload'
    responses:
      '200':
        description: Icon stored
      '400':
        $ref: '#/components/responses/Rejected'
      '500':
        description: Icon could not be stored
  delete:
    tags: [%[2]s]
    summary: Delete icon
    responses:
      '200':
        description: Icon deleted
      '304':
        description: Icon exists but could not be deleted
      '404':
        description: Icon not found
%[1]s/{service}/{name}/meta:
  get:
    tags: [%[2]s]
    summary: Icon metadata
    parameters:
      - $ref: '#/components/parameters/service'
      - $ref: '#/components/parameters/name'
    responses:
      '200':
        description: Indexed metadata
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Icon'
      '404':
        description: Icon not indexed
`

const componentsTemplate = `parameters:
  service:
    name: service
    in: path
    required: true
    schema:
      type: string
  name:
    name: name
    in: path
    required: true
    description: File name, its suffix must match the image format
    schema:
      type: string
requestBodies:
  IconUpload:
    required: true
    content:
      multipart/form-data:
        schema:
          type: object
          properties:
            file:
              type: string
              format: binary
              description: PNG or JPEG smaller than 2MB, taller or wider than 128px
          required:
            - file
responses:
  Rejected:
    description: Upload rejected, the body holds the reason
    content:
      text/plain:
        schema:
          type: string
schemas:
  Icon:
    type: object
    properties:
      service: {type: string}
      name: {type: string}
      format: {type: string, enum: [JPEG, PNG]}
      content_type: {type: string}
      size: {type: integer}
      width: {type: integer}
      height: {type: integer}
      hash: {type: string}
      location: {type: string}
      updated_at: {type: string, format: date-time}
      created_at: {type: string, format: date-time}
`

// GenerateOpenAPISpec renders the OpenAPI document of the HTTP surface.
func GenerateOpenAPISpec() (string, error) {
	var spec map[string]any
	if err := yaml.Unmarshal([]byte(fmt.Sprintf(openAPIHeader, openAPITag)), &spec); err != nil {
		return "", fmt.Errorf("failed to parse OpenAPI header: %w", err)
	}

	var paths map[string]any
	if err := yaml.Unmarshal([]byte(fmt.Sprintf(iconPathsTemplate, IconsPath, openAPITag)), &paths); err != nil {
		return "", fmt.Errorf("failed to parse icon paths: %w", err)
	}
	spec["paths"] = paths

	var components map[string]any
	if err := yaml.Unmarshal([]byte(componentsTemplate), &components); err != nil {
		return "", fmt.Errorf("failed to parse OpenAPI components: %w", err)
	}
	spec["components"] = components

	var out strings.Builder
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return "", fmt.Errorf("failed to marshal OpenAPI spec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal OpenAPI spec: %w", err)
	}

	return out.String(), nil
}

func OpenAPI(c *gin.Context) {
	spec, err := GenerateOpenAPISpec()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate OpenAPI spec")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/yaml", []byte(spec))
}
