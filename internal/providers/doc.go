// Package providers holds the knowledge API capability providers.
//
// Each provider is a packs.Pack with a static tool catalog:
//
//	notes    create_note get_note update_note replace_note delete_note list_notes
//	search   search_notes search_graph
//	project  get_project_info get_folder_stats get_session_info
//	stats    get_project_stats get_usage_stats
//	crossref get_note_links create_note_link delete_note_link get_note_connections
//
// Handlers translate arguments into one request under
// /api/projects/{project} and return {"success":true,"tool":...,"data":...},
// where data is the response's data field when it has one.
package providers
