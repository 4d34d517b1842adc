package records

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"supabasemcp/storage"
)

// Tool names.
const (
	ToolRead          = "read_records"
	ToolCreate        = "create_records"
	ToolUpdate        = "update_records"
	ToolDelete        = "delete_records"
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
)

type ReadArgs struct {
	TableName      string         `json:"table_name" jsonschema:"description=The name of the table to read from"`
	Columns        []string       `json:"columns,omitempty" jsonschema:"description=Column names to return. All columns are returned when omitted"`
	Filters        storage.Fields `json:"filters,omitempty" jsonschema:"description=Equality filters where keys are column names and values are the values to match"`
	Limit          int            `json:"limit,omitempty" jsonschema:"default=100,minimum=0,description=Maximum number of records to return"`
	OrderBy        string         `json:"order_by,omitempty" jsonschema:"description=Column name to order results by"`
	OrderDirection string         `json:"order_direction,omitempty" jsonschema:"enum=asc,enum=desc,default=asc,description=Ordering direction"`
}

type CreateArgs struct {
	TableName string        `json:"table_name" jsonschema:"description=The name of the table to create records in"`
	Records   []storage.Row `json:"records" jsonschema:"description=Records to insert. Each record maps column names to values"`
}

type UpdateArgs struct {
	TableName string         `json:"table_name" jsonschema:"description=The name of the table to update records in"`
	Updates   storage.Fields `json:"updates" jsonschema:"description=Column names mapped to the new values to set"`
	Filters   storage.Fields `json:"filters" jsonschema:"description=Equality filters identifying the records to update. Required"`
}

type DeleteArgs struct {
	TableName string         `json:"table_name" jsonschema:"description=The name of the table to delete records from"`
	Filters   storage.Fields `json:"filters" jsonschema:"description=Equality filters identifying the records to delete. Required"`
}

type DescribeArgs struct {
	TableName string `json:"table_name" jsonschema:"description=The name of the table to describe"`
}

type ListArgs struct{}

// Tools returns the MCP tools backed by the service.
func (s *Service) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolRead,
				mcp.WithDescription("Reads records from a table in the database. "+
					"Supports column selection, equality filters, ordering and a row limit (100 by default)."),
				mcp.WithInputSchema[ReadArgs](),
				mcp.WithTitleAnnotation("Read records"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolRead, func(ctx context.Context, args ReadArgs) Envelope {
				return s.Read(ctx, args.TableName, storage.Query{
					Columns:   args.Columns,
					Filters:   args.Filters,
					OrderBy:   args.OrderBy,
					Direction: storage.ParseDirection(args.OrderDirection),
					Limit:     args.Limit,
				})
			}),
		},
		{
			Tool: mcp.NewTool(ToolCreate,
				mcp.WithDescription("Creates one or more records in a table. "+
					"Use it to insert new data; pass several records to insert them in one call. "+
					"Returns the inserted records including server-assigned fields."),
				mcp.WithInputSchema[CreateArgs](),
				mcp.WithTitleAnnotation("Create records"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolCreate, func(ctx context.Context, args CreateArgs) Envelope {
				return s.Create(ctx, args.TableName, args.Records)
			}),
		},
		{
			Tool: mcp.NewTool(ToolUpdate,
				mcp.WithDescription("Updates the records of a table that match the filters. "+
					"Filters are required: updating every record is not allowed. "+
					"Matching records are updated one by one and a failure part-way leaves earlier records updated."),
				mcp.WithInputSchema[UpdateArgs](),
				mcp.WithTitleAnnotation("Update records"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolUpdate, func(ctx context.Context, args UpdateArgs) Envelope {
				return s.Update(ctx, args.TableName, args.Updates, args.Filters)
			}),
		},
		{
			Tool: mcp.NewTool(ToolDelete,
				mcp.WithDescription("Deletes the records of a table that match the filters. "+
					"Filters are required: deleting every record is not allowed. "+
					"Matching records are deleted one by one and a failure part-way leaves earlier records deleted."),
				mcp.WithInputSchema[DeleteArgs](),
				mcp.WithTitleAnnotation("Delete records"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolDelete, func(ctx context.Context, args DeleteArgs) Envelope {
				return s.Delete(ctx, args.TableName, args.Filters)
			}),
		},
		{
			Tool: mcp.NewTool(ToolListTables,
				mcp.WithDescription("Lists the tables of the database."),
				mcp.WithInputSchema[ListArgs](),
				mcp.WithTitleAnnotation("List tables"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolListTables, func(ctx context.Context, _ ListArgs) Envelope {
				return s.ListTables(ctx)
			}),
		},
		{
			Tool: mcp.NewTool(ToolDescribeTable,
				mcp.WithDescription("Describes the columns of a table: name, data type and nullability."),
				mcp.WithInputSchema[DescribeArgs](),
				mcp.WithTitleAnnotation("Describe table"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			Handler: envelopeHandler(s, ToolDescribeTable, func(ctx context.Context, args DescribeArgs) Envelope {
				return s.DescribeTable(ctx, args.TableName)
			}),
		},
	}
}

// RegisterTools adds the record tools to srv.
func (s *Service) RegisterTools(srv *server.MCPServer) {
	srv.AddTools(s.Tools()...)
}

// envelopeHandler binds the call arguments into T and always answers with an
// envelope. Arguments that fail to decode become a failed envelope rather than
// a protocol error.
func envelopeHandler[T any](s *Service, name string, handle func(context.Context, T) Envelope) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		logger := s.logger.With(slog.String("tool", name), slog.String("call_id", callID))

		var args T
		if err := request.BindArguments(&args); err != nil {
			table := request.GetString("table_name", "")
			logger.Info("records: invalid tool arguments", slog.String("table", table), slog.String("error", err.Error()))
			return mcp.NewToolResultStructuredOnly(Fail(table, invalidArguments(err))), nil
		}

		logger.Debug("records: tool call")
		env := handle(ctx, args)
		logger.Info("records: tool call done", slog.String("table", env.Table), slog.Bool("success", env.Success), slog.Int("count", env.Count))

		return mcp.NewToolResultStructuredOnly(env), nil
	}
}
