/*
	Package tuvok provides types, constants, and functions that have no other dependencies
	and can be used by all packages within Tuvok.  This includes the element data types
	a volume can hold, brick identity, leveled logging, serialization with compression,
	and command string handling.  Since these elements are used at multiple layers,
	we separate them here and allow reuse in subsystem-specific types.
*/
package tuvok
